package identity

// HandleAvailableMessage is the user-facing text for a free handle.
func HandleAvailableMessage(handle string) string {
	return handle + " está disponible"
}

// HandleTakenMessage is the user-facing text for a handle that cannot be registered.
func HandleTakenMessage(handle string) string {
	return handle + " ya está registrado"
}
