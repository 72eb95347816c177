package journey

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Mode string

const (
	ModeNormal Mode = "normal"
	ModeUrgent Mode = "urgent"
)

// Request is a journey search as accepted at the boundary.
type Request struct {
	TrainNo     string `json:"trainNo" validate:"required,trainno"`
	Source      string `json:"source" validate:"required,stationcode"`
	Destination string `json:"destination" validate:"required,stationcode,nefield=Source"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	ClassType   string `json:"classType" validate:"required,oneof=1A 2A 3A 3E SL CC EC EA FC 2S"`
	Quota       string `json:"quota" validate:"required,oneof=GN TQ PT LD SS HP DF FT YU"`
	Mode        Mode   `json:"mode" validate:"oneof=normal urgent"`
}

// Normalize trims and upper-cases codes and defaults the mode to urgent.
func (r Request) Normalize() Request {
	r.TrainNo = strings.TrimSpace(r.TrainNo)
	r.Source = strings.ToUpper(strings.TrimSpace(r.Source))
	r.Destination = strings.ToUpper(strings.TrimSpace(r.Destination))
	r.Date = strings.TrimSpace(r.Date)
	r.ClassType = strings.ToUpper(strings.TrimSpace(r.ClassType))
	r.Quota = strings.ToUpper(strings.TrimSpace(r.Quota))
	r.Mode = Mode(strings.ToLower(strings.TrimSpace(string(r.Mode))))
	if r.Mode == "" {
		r.Mode = ModeUrgent
	}
	return r
}

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned before any upstream call when the request is malformed.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

var (
	trainNoPattern     = regexp.MustCompile(`^\d{4,5}$`)
	stationCodePattern = regexp.MustCompile(`^[A-Z]{2,5}$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("trainno", func(fl validator.FieldLevel) bool {
		return trainNoPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("stationcode", func(fl validator.FieldLevel) bool {
		return stationCodePattern.MatchString(fl.Field().String())
	})
	return v
}

func validateRequest(v *validator.Validate, req Request) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate request: %w", err)
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "trainno":
		return field + " must be a 4 or 5 digit train number"
	case "stationcode":
		return field + " must be a station code of 2 to 5 letters"
	case "nefield":
		return "source and destination must differ"
	case "datetime":
		return field + " must be a date in YYYY-MM-DD format"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
