package xerrors

var (
	// ErrInvalidParameter 市场参数非法 (T<=0、σ<=0、S<=0、K<=0 或非有限数)。
	ErrInvalidParameter = New(ErrInvalidArg, 400101, "invalid parameter", "", nil)
	// ErrInvalidOptionType 无效的期权类型。
	ErrInvalidOptionType = New(ErrInvalidArg, 400004, "invalid option type", "supported types: call, put", ErrInvalidParameter)
	// ErrInvalidIterations 模拟次数必须为正整数。
	ErrInvalidIterations = New(ErrInvalidArg, 400102, "invalid iterations", "iterations must be at least 1", ErrInvalidParameter)
	// ErrInvalidGrid 网格维度非法。
	ErrInvalidGrid = New(ErrInvalidArg, 400103, "invalid grid", "grid axes must be non-empty and within limits", nil)
	// ErrInvalidConfig 配置错误。
	ErrInvalidConfig = New(ErrInvalidArg, 400005, "invalid config", "check pricing and surface sections", nil)
	// ErrTooManyRequests 限流触发。
	ErrTooManyRequests = New(ErrLimitExceeded, 429001, "too many requests", "access rate limit exceeded", nil)
)
