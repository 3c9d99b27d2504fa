package signup

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario context the signup steps use.
type TestContext interface {
	POST(path string, body any) error
	PATCH(path string, body any, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	UniqueEmail(addr string) string
}

// RegisterSteps registers signup form and field validation steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &signupSteps{tc: tc}

	ctx.Step(`^an individual signup form for "([^"]*)"$`, steps.individualForm)
	ctx.Step(`^a company signup form for "([^"]*)" named "([^"]*)" with tax id "([^"]*)"$`, steps.companyForm)
	ctx.Step(`^the form field "([^"]*)" is "([^"]*)"$`, steps.setField)
	ctx.Step(`^I submit the signup form$`, steps.submit)
	ctx.Step(`^I submit the signup form again$`, steps.submit)

	ctx.Step(`^I validate the email "([^"]*)"$`, steps.validateEmail)
	ctx.Step(`^I validate the phone "([^"]*)" for country "([^"]*)"$`, steps.validatePhone)
	ctx.Step(`^I validate the password "([^"]*)"$`, steps.validatePassword)
	ctx.Step(`^the signup errors should include "([^"]*)"$`, steps.errorsShouldInclude)
}

type signupSteps struct {
	tc   TestContext
	form map[string]any
}

func (s *signupSteps) individualForm(ctx context.Context, email string) error {
	s.form = map[string]any{
		"account_type":     "individual",
		"first_name":       "Sara",
		"last_name":        "Ali",
		"email":            s.tc.UniqueEmail(email),
		"phone":            "0512345678",
		"phone_country_id": "SA",
		"password":         "Abcdefg1!",
		"confirm_password": "Abcdefg1!",
	}
	return nil
}

func (s *signupSteps) companyForm(ctx context.Context, email, name, taxID string) error {
	if err := s.individualForm(ctx, email); err != nil {
		return err
	}
	s.form["account_type"] = "company"
	s.form["company_name"] = name
	s.form["tax_id"] = taxID
	s.form["phone"] = "0112345678"
	return nil
}

func (s *signupSteps) setField(ctx context.Context, field, value string) error {
	if s.form == nil {
		return fmt.Errorf("no signup form started")
	}
	s.form[field] = value
	return nil
}

func (s *signupSteps) submit(ctx context.Context) error {
	return s.tc.POST("/signup", s.form)
}

func (s *signupSteps) validateEmail(ctx context.Context, email string) error {
	return s.tc.POST("/signup/validate/email", map[string]string{"email": email})
}

func (s *signupSteps) validatePhone(ctx context.Context, phone, country string) error {
	return s.tc.POST("/signup/validate/phone", map[string]string{"phone": phone, "country_id": country})
}

func (s *signupSteps) validatePassword(ctx context.Context, password string) error {
	return s.tc.POST("/signup/validate/password", map[string]string{"password": password})
}

func (s *signupSteps) errorsShouldInclude(ctx context.Context, msg string) error {
	v, err := s.tc.GetResponseField("errors")
	if err != nil {
		return err
	}
	list, ok := v.([]any)
	if !ok {
		return fmt.Errorf("errors is not a list: %v", v)
	}
	for _, item := range list {
		if item == msg {
			return nil
		}
	}
	return fmt.Errorf("expected errors to include %q, got %v", msg, list)
}
