package services

import "errors"

// Common service errors
var (
	ErrNotFound        = errors.New("registro no encontrado")
	ErrInvalidPassword = errors.New("contraseña inválida")
	ErrUnauthorized    = errors.New("no autorizado")

	// Distribution validation
	ErrInvalidAmount   = errors.New("el monto del pago debe ser mayor que cero")
	ErrEmptySaleSet    = errors.New("el cliente no tiene ventas con saldo pendiente")
	ErrUnknownSale     = errors.New("el ajuste manual referencia una venta inexistente")
	ErrInvalidOverride = errors.New("el ajuste manual reduce el monto recibido de una venta")

	// Offline queue
	ErrActionType      = errors.New("tipo de acción desconocido")
	ErrReplayExhausted = errors.New("la acción agotó sus reintentos y fue descartada")
)
