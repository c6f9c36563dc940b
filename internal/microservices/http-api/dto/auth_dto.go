package dto

// Data Transfer Objects for authentication requests and responses

// SignupRequest: payload for account registration. The password is optional for OTP-only accounts.
type SignupRequest struct {
	Mobile   string `json:"mobile" binding:"required,e164"`
	Password string `json:"password" binding:"omitempty,min=8,max=72"`
}

type SendOTPRequest struct {
	Mobile string `json:"mobile" binding:"required,e164"`
}

type VerifyOTPRequest struct {
	Mobile string `json:"mobile" binding:"required,e164"`
	OTP    string `json:"otp" binding:"required,len=6,numeric"`
}

type ForgotPasswordRequest struct {
	Mobile string `json:"mobile" binding:"required,e164"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// OTPResponse carries the code itself because SMS delivery is mocked.
type OTPResponse struct {
	Message string `json:"message"`
	OTP     string `json:"otp"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}
