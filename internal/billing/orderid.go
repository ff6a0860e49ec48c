package billing

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const orderIDPrefix = "ORD"

// GenerateOrderID 生成订单号：毫秒时间戳（36 进制）+ 48 位随机后缀，全部大写
func GenerateOrderID(now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 36)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return strings.ToUpper(orderIDPrefix + "-" + ts + "-" + suffix)
}
