package identity

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

// User-facing validation messages.
const (
	msgHandleEmpty       = "El handle no puede ir vacio"
	msgHandleInvalid     = "El handle no puede contener espacios ni '/'"
	msgHandleTooLong     = "El handle es muy largo"
	msgHandleReserved    = "Nombre de usuario no disponible"
	msgNameEmpty         = "El Nombre no puede ir vacio"
	msgEmailInvalid      = "E-mail no válido"
	msgPasswordShortFmt  = "El Password es muy corto, minimo %d caracteres"
	msgPasswordRequired  = "El Password es obligatorio"
	msgPasswordRejected  = "El Password no es válido"
	msgSearchHandleEmpty = "El Handle no puede ir vacio"
)

const maxHandleRunes = 64

// DefaultReservedHandles collide with top-level routes and can never be registered.
var DefaultReservedHandles = []string{"auth", "user", "search", "healthz", "readyz", "metrics"}

type fieldErrors []FieldError

func (f *fieldErrors) add(field, msg string) {
	*f = append(*f, FieldError{Field: field, Msg: msg})
}

func (f fieldErrors) err(op string) error {
	if len(f) == 0 {
		return nil
	}
	return ValidationError{Op: op, Fields: f}
}

func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || !strings.EqualFold(addr.Address, email) {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return false
	}
	domain := email[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

// handleShapeError returns a message when the (normalized) handle cannot be used as a path segment.
func handleShapeError(handle string) string {
	if handle == "" {
		return msgHandleEmpty
	}
	if utf8.RuneCountInString(handle) > maxHandleRunes {
		return msgHandleTooLong
	}
	for _, r := range handle {
		if r == '/' || r == '?' || r == '#' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return msgHandleInvalid
		}
	}
	// "." and ".." are cleaned away by the router and can never be served.
	if strings.Trim(handle, ".") == "" {
		return msgHandleInvalid
	}
	return ""
}

func (s *Service) validateRegister(op string, in RegisterInput) error {
	var fe fieldErrors

	switch msg := handleShapeError(in.Handle); {
	case msg != "":
		fe.add(FieldHandle, msg)
	case s.isReserved(in.Handle):
		fe.add(FieldHandle, msgHandleReserved)
	}
	if in.Name == "" {
		fe.add(FieldName, msgNameEmpty)
	}
	if !validEmail(in.Email) {
		fe.add(FieldEmail, msgEmailInvalid)
	}
	if utf8.RuneCountInString(in.Password) < s.minPassword {
		fe.add(FieldPassword, fmt.Sprintf(msgPasswordShortFmt, s.minPassword))
	}
	return fe.err(op)
}

func validateLogin(op, email, password string) error {
	var fe fieldErrors
	if !validEmail(email) {
		fe.add(FieldEmail, msgEmailInvalid)
	}
	if password == "" {
		fe.add(FieldPassword, msgPasswordRequired)
	}
	return fe.err(op)
}

// validateSearch rejects handles that could never be registered. Reserved
// handles pass here and are reported as unavailable instead.
func validateSearch(op, handle string) error {
	var fe fieldErrors
	switch {
	case handle == "":
		fe.add(FieldHandle, msgSearchHandleEmpty)
	default:
		if msg := handleShapeError(handle); msg != "" {
			fe.add(FieldHandle, msg)
		}
	}
	return fe.err(op)
}

func (s *Service) isReserved(handle string) bool {
	_, ok := s.reserved[strings.ToLower(handle)]
	return ok
}
