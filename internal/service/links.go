package service

import (
	"net/url"
	"strings"
)

// Links builds the absolute URLs mailed to customers and the redirect
// targets of the verification endpoints.
type Links struct {
	PublicURL   string
	FrontendURL string
}

func (l Links) QuestionnaireVerification(token string) string {
	return build(l.PublicURL, "/verify-questionnaire", url.Values{"token": {token}})
}

func (l Links) RegistrationVerification(token, userID string) string {
	return build(l.PublicURL, "/verify-registration", url.Values{"token": {token}, "userId": {userID}})
}

// VerificationSuccess is where a questionnaire verification lands. verified
// is "success" for the first visit and "already" for every later one.
func (l Links) VerificationSuccess(verified, email, questionnaireID string) string {
	return build(l.FrontendURL, "/verification-success", url.Values{
		"verified":        {verified},
		"email":           {email},
		"questionnaireId": {questionnaireID},
	})
}

func (l Links) Login(q url.Values) string {
	return build(l.FrontendURL, "/login", q)
}

func build(base, path string, q url.Values) string {
	return strings.TrimRight(base, "/") + path + "?" + q.Encode()
}
