package dto

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/chonibe/coa-service-sub020/pkg/utils"
)

var registerOnce sync.Once

// RegisterValidators 向 gin 的校验器注册自定义规则
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		err = v.RegisterValidation("nfcserial", validateSerial)
	})
	return err
}

func validateSerial(fl validator.FieldLevel) bool {
	return utils.IsValidSerial(utils.NormalizeSerial(fl.Field().String()))
}
