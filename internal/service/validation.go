package service

import (
	"strings"
	"time"

	"github.com/qs3c/cake_billing_server/internal/model"
	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/apperror"
	"github.com/qs3c/cake_billing_server/internal/pkg/validator"
)

var requestValidator = validator.New()

const birthdayLayout = "2006-01-02"

type companyInput struct {
	Name      string
	Email     string
	Phone     string
	Employees model.EmployeeList
}

// validateSubscribe 规范化并校验订阅请求
func validateSubscribe(req *dto.SubscribeRequest) (*companyInput, error) {
	if req == nil {
		return nil, apperror.Validation("请求体不能为空")
	}

	normalized := dto.SubscribeRequest{
		CompanyName:  strings.TrimSpace(req.CompanyName),
		CompanyEmail: strings.ToLower(strings.TrimSpace(req.CompanyEmail)),
		Phone:        strings.TrimSpace(req.Phone),
		Employees:    normalizeEmployees(req.Employees),
	}
	if err := requestValidator.Struct(&normalized); err != nil {
		return nil, err
	}

	employees, err := toEmployees(normalized.Employees)
	if err != nil {
		return nil, err
	}
	return &companyInput{
		Name:      normalized.CompanyName,
		Email:     normalized.CompanyEmail,
		Phone:     normalized.Phone,
		Employees: employees,
	}, nil
}

// validateEmployees 员工名单至少一人
func validateEmployees(inputs []dto.EmployeeInput) (model.EmployeeList, error) {
	req := dto.UpdateEmployeesRequest{Employees: normalizeEmployees(inputs)}
	if err := requestValidator.Struct(&req); err != nil {
		return nil, err
	}
	return toEmployees(req.Employees)
}

func normalizeEmployees(inputs []dto.EmployeeInput) []dto.EmployeeInput {
	if inputs == nil {
		return nil
	}
	out := make([]dto.EmployeeInput, len(inputs))
	for i, e := range inputs {
		out[i] = dto.EmployeeInput{
			Name:     strings.TrimSpace(e.Name),
			Birthday: strings.TrimSpace(e.Birthday),
			CakeType: strings.TrimSpace(e.CakeType),
			CakeSize: strings.ToLower(strings.TrimSpace(e.CakeSize)),
			Notes:    strings.TrimSpace(e.Notes),
		}
	}
	return out
}

// toEmployees 已通过标签校验的输入转为模型
func toEmployees(inputs []dto.EmployeeInput) (model.EmployeeList, error) {
	list := make(model.EmployeeList, 0, len(inputs))
	for _, e := range inputs {
		birthday, err := time.Parse(birthdayLayout, e.Birthday)
		if err != nil {
			return nil, apperror.Validation("员工 %s 的生日格式应为 YYYY-MM-DD", e.Name)
		}
		size, err := model.ParseCakeSize(e.CakeSize)
		if err != nil {
			return nil, apperror.Validation("员工 %s 的蛋糕尺寸无效", e.Name)
		}
		list = append(list, model.Employee{
			Name:     e.Name,
			Birthday: birthday,
			CakeType: e.CakeType,
			CakeSize: size,
			Notes:    e.Notes,
		})
	}
	return list, nil
}
