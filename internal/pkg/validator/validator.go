package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/qs3c/cake_billing_server/internal/pkg/apperror"
)

// Validator 对 go-playground/validator 的封装，校验失败返回带字段明细的 apperror
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()
	// 错误里使用 json 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Struct 按 validate 标签校验结构体
func (v *Validator) Struct(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return apperror.Internal(err, "")
	}

	fields := make(map[string]string, len(fieldErrors))
	for _, fe := range fieldErrors {
		path := fieldPath(fe)
		if _, ok := fields[path]; ok {
			continue
		}
		fields[path] = message(fe)
	}
	return apperror.ValidationFields(fields)
}

// fieldPath 去掉顶层结构体名，例如 employees[0].birthday
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "不能为空"
	case "email":
		return "邮箱格式不正确"
	case "numeric":
		return "只能包含数字"
	case "len":
		return fmt.Sprintf("长度必须为 %s", fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("至少需要 %s 项", fe.Param())
		}
		return fmt.Sprintf("长度不能少于 %s", fe.Param())
	case "max":
		return fmt.Sprintf("长度不能超过 %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("必须是以下之一: %s", fe.Param())
	case "datetime":
		return "日期格式应为 YYYY-MM-DD"
	default:
		return "格式不正确"
	}
}
