package auth

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetAccessToken() string
	SetAccessToken(token string)
	Credentials() (username, password string)
}

// RegisterSteps registers login and logout steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^I am logged in as the operator$`, steps.loggedInAsOperator)
	ctx.Step(`^I log in with username "([^"]*)" and password "([^"]*)"$`, steps.login)
	ctx.Step(`^I log out$`, steps.logout)
	ctx.Step(`^I reuse my previous access token$`, steps.reusePreviousToken)
}

type authSteps struct {
	tc TestContext
	// token kept across logout so revocation can be checked
	lastToken string
}

func (s *authSteps) loggedInAsOperator(ctx context.Context) error {
	user, pass := s.tc.Credentials()
	if err := s.login(ctx, user, pass); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return fmt.Errorf("operator login failed with status %d", s.tc.GetLastResponseStatus())
	}
	token, err := s.tc.GetResponseField("accessToken")
	if err != nil {
		return err
	}
	s.tc.SetAccessToken(token.(string))
	s.lastToken = token.(string)
	return nil
}

func (s *authSteps) login(ctx context.Context, username, password string) error {
	return s.tc.POST("/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
}

func (s *authSteps) logout(ctx context.Context) error {
	return s.tc.POST("/auth/logout", map[string]string{}, nil)
}

func (s *authSteps) reusePreviousToken(ctx context.Context) error {
	s.tc.SetAccessToken(s.lastToken)
	return nil
}
