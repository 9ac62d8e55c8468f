package authapi

type registerRequest struct {
	Handle   string `json:"handle"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type searchRequest struct {
	Handle string `json:"handle"`
}

// User-facing response texts.
const (
	msgRegistered     = "Registro Creado Correctamente"
	msgDuplicateEmail = "Un usuario con ese mail ya esta registrado"
	msgHandleTaken    = "Nombre de usuario no disponible"
	msgUserNotFound   = "El Usuario no existe"
	msgWrongPassword  = "Password Incorrecto"
	msgUnauthorized   = "No Autorizado"
	msgInvalidToken   = "Token No Válido"
	msgInvalidBody    = "Solicitud no válida"
	msgInternal       = "Error interno"
)
