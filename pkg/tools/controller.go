package tools

// ActionRequest is one dispatched call to a Controller.
type ActionRequest struct {
	Action string         `json:"action"` // one of Controller.Capabilities()
	Params map[string]any `json:"params"` // never nil when built by ActionTool
}

// StringParam returns the named parameter when it is a non-empty string.
func (r ActionRequest) StringParam(name string) (string, bool) {
	s, ok := r.Params[name].(string)
	return s, ok && s != ""
}

// ActionResponse 代表動作執行的結果
type ActionResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Succeed wraps data as a successful response.
func Succeed(data any) *ActionResponse {
	return &ActionResponse{Success: true, Data: data}
}

// Fail reports an action-level failure. The tool call itself still succeeds
// and the model sees the message.
func Fail(err error) *ActionResponse {
	return &ActionResponse{Success: false, Error: err.Error()}
}

// Controller 以「動作分發」方式提供一組相關操作
type Controller interface {
	// Execute runs req. An error means the action is unknown or could not be
	// attempted; see Fail for ordinary failures.
	Execute(req ActionRequest) (*ActionResponse, error)

	// Capabilities lists the supported action names, advertised as an enum.
	Capabilities() []string
}
