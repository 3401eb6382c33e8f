package domain

import "errors"

// ErrorCode returns the machine-readable code for err
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return "code_not_found"
	case errors.Is(err, ErrSelfTracking):
		return "self_tracking_rejected"
	case errors.Is(err, ErrTargetInactive):
		return "target_inactive"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCodeGenerationExhausted):
		return "code_generation_exhausted"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrEmailTaken):
		return "email_taken"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}

// UserMessage returns the pt-BR message shown to users for err
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return "Nenhum usuário encontrado com este código de rastreamento"
	case errors.Is(err, ErrSelfTracking):
		return "Você não pode conectar com você mesmo"
	case errors.Is(err, ErrTargetInactive):
		return "O usuário desativou o rastreamento"
	case errors.Is(err, ErrNotFound):
		return "Nenhuma localização encontrada para os parceiros"
	case errors.Is(err, ErrCodeGenerationExhausted):
		return "Não foi possível gerar um código de rastreamento. Tente novamente."
	case errors.Is(err, ErrInvalidCredentials):
		return "Email ou senha inválidos"
	case errors.Is(err, ErrEmailTaken):
		return "Este email já está cadastrado"
	case errors.Is(err, ErrInvalidInput):
		return "Dados inválidos"
	case errors.Is(err, ErrForbidden):
		return "Você não tem permissão para ver esta localização"
	default:
		return "Erro inesperado. Tente novamente."
	}
}
