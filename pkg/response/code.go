package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 用户/鉴权错误 100xx
	ErrUserNotFound = 10002
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 订单模块错误 300xx
	ErrOrderInvalid      = 30001
	ErrOrderCreate       = 30002
	ErrOrderNotFound     = 30003
	ErrOrderDuplicate    = 30004
	ErrInsufficientStock = 30005

	// 钱包模块错误 400xx
	ErrVendorNotFound = 40001
	ErrInvalidAmount  = 40002
	ErrPaymentFailed  = 40003

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
)
