package types

// Endpoint is one operation of an API description, reduced to what the
// oracle needs to place a payload
type Endpoint struct {
	Method      string      `json:"method" yaml:"method"`
	Path        string      `json:"path" yaml:"path"`
	Parameters  []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	BodyType    string      `json:"body_type,omitempty" yaml:"body_type,omitempty"` // request body media type
	OperationID string      `json:"operation_id,omitempty" yaml:"operation_id,omitempty"`
}

// Parameter represents an API parameter
type Parameter struct {
	Name     string `json:"name" yaml:"name"`
	In       string `json:"in" yaml:"in"` // query, path, header, cookie, body
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool   `json:"required" yaml:"required"`
}

// Find returns the named parameter
func (e *Endpoint) Find(name string) (Parameter, bool) {
	for _, p := range e.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}
