package model

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators 向gin的校验引擎注册自定义规则
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}

	if err := v.RegisterValidation("topk", validateTopK); err != nil {
		return err
	}
	return v.RegisterValidation("pagesize", validatePageSize)
}

// validateTopK topK必须在1到MaxTopK之间
func validateTopK(fl validator.FieldLevel) bool {
	k := fl.Field().Int()
	return k >= 1 && k <= MaxTopK
}

// validatePageSize 每页数量必须在1到MaxPageSize之间
func validatePageSize(fl validator.FieldLevel) bool {
	n := fl.Field().Int()
	return n >= 1 && n <= MaxPageSize
}
