package registration

// Response codes surfaced per requested user. The existing-account code is a
// legacy directory convention the API consumers already key off.
const (
	CodeOK            = 200
	CodeBadRequest    = 400
	CodeAccountExists = 4001
	CodeGenericError  = 500
)

// Per-item and batch messages. These are part of the API contract and must
// not be reworded.
const (
	MsgOK            = "OK"
	MsgAccountExists = "Account already exists."
	MsgInvalidEmail  = "Email is invalid."
	MsgGenericError  = "Something went wrong, please contact the system administrator."

	MsgNoUsers        = "No users requested."
	MsgRequestLimit   = "Requested users exceed request limit: %d."
	MsgEmptyEmailList = "Email list has null or empty values."
)

// Status classifies a per-user outcome.
type Status string

const (
	// StatusCreated means a new lite account was registered.
	StatusCreated Status = "created"
	// StatusExists means an account already claimed the email.
	StatusExists Status = "exists"
	// StatusInvalid means the email failed format validation.
	StatusInvalid Status = "invalid"
	// StatusFailed means the directory call for this user failed.
	StatusFailed Status = "failed"
)

// User is one requested registration.
type User struct {
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	InviterEmail string `json:"inviterEmail"`
	Location     string `json:"location"`
	ClientID     string `json:"clientId"`
}

// Result is the outcome for one requested user. Results come back in request
// order, one per input.
type Result struct {
	Email        string
	Status       Status
	UID          string
	IsRegistered bool
	IsActive     bool
	Tenant       string
	Code         int
	Message      string
}
