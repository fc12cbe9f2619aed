package validator

func init() {
	validate.RegisterValidation("digits18", validateDigits18)
	validate.RegisterValidation("digits9", validateDigits9)
}

type Validator struct{}

func (v *Validator) ValidateStruct(payload interface{}) *[]error {
	return validateStruct(payload)
}

func (v *Validator) ValidateValue(value any, rules string) error {
	return validateField(value, rules)
}

var ValidatorInstance = Validator{}
