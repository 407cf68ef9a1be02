package services

import (
	"bytes"
	"context"
	"html/template"
	"net/url"
	"sync"
	"time"

	"school-crm-api/internal/adapters/persistence/models"
	"school-crm-api/internal/core/domain"

	"github.com/rs/zerolog"
)

const mailTimeout = 30 * time.Second

// Mailer delivers a single HTML email
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NotificationService sends account emails in the background
type NotificationService struct {
	mailer      Mailer
	frontendURL string
	log         zerolog.Logger
	wg          sync.WaitGroup
}

// NewNotificationService creates a notification service. A nil mailer
// disables delivery; notifications are then only logged.
func NewNotificationService(mailer Mailer, frontendURL string, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		mailer:      mailer,
		frontendURL: frontendURL,
		log:         log.With().Str("component", "notify").Logger(),
	}
}

// IsEnabled checks if notification is enabled
func (s *NotificationService) IsEnabled() bool {
	return s.mailer != nil
}

// NotifyWelcome sends the welcome email with an email verification link
func (s *NotificationService) NotifyWelcome(user *models.User, verifyToken string) {
	data := welcomeData{
		Name:      user.FullName(),
		VerifyURL: s.link("/verify-email", verifyToken),
	}

	subject := "Welcome to School CRM"
	if user.Organization != nil {
		switch domain.Organization(*user.Organization) {
		case domain.OrganizationSchool:
			data.Space = "school"
			if user.Role == string(domain.RoleStudent) {
				data.Space = "student"
			}
		case domain.OrganizationHospital:
			data.Space = "hospital"
			subject = "Welcome to the patient and staff portal"
		}
	}

	s.dispatch(user.Email, subject, welcomeTemplate, data)
}

// NotifyPasswordReset sends the password reset link
func (s *NotificationService) NotifyPasswordReset(email, resetToken string) {
	s.dispatch(email, "Password reset request", resetTemplate, resetData{
		ResetURL: s.link("/reset-password", resetToken),
	})
}

// Close waits for in-flight deliveries
func (s *NotificationService) Close() {
	s.wg.Wait()
}

func (s *NotificationService) link(path, token string) string {
	return s.frontendURL + path + "?token=" + url.QueryEscape(token)
}

func (s *NotificationService) dispatch(to, subject string, tmpl *template.Template, data interface{}) {
	if !s.IsEnabled() {
		s.log.Debug().Str("to", to).Str("subject", subject).Msg("email delivery disabled")
		return
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		s.log.Error().Err(err).Str("template", tmpl.Name()).Msg("render email")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()

		if err := s.mailer.Send(ctx, to, subject, body.String()); err != nil {
			s.log.Error().Err(err).Str("to", to).Str("subject", subject).Msg("email delivery failed")
			return
		}
		s.log.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	}()
}

type welcomeData struct {
	Name      string
	Space     string
	VerifyURL string
}

type resetData struct {
	ResetURL string
}

var welcomeTemplate = template.Must(template.New("welcome").Parse(`<h1>Welcome, {{.Name}}</h1>
{{if eq .Space "student"}}<p>Your student account has been created. You can now follow your courses, grades and schedule.</p>
{{else if eq .Space "school"}}<p>Your school staff account has been created.</p>
{{else if eq .Space "hospital"}}<p>Your account on the hospital portal has been created. You can now manage appointments and records.</p>
{{else}}<p>Your account has been created.</p>
{{end}}<p>Please confirm your email address: <a href="{{.VerifyURL}}">verify my email</a></p>
<p>This link expires in 24 hours.</p>`))

var resetTemplate = template.Must(template.New("reset").Parse(`<h1>Password reset</h1>
<p>We received a request to reset your password.</p>
<p><a href="{{.ResetURL}}">Choose a new password</a></p>
<p>This link expires in 1 hour. If you did not ask for a reset, ignore this email.</p>`))
