package execution

// Attribute is a key/value pair attached to a response or an event.
type Attribute struct {
	Key   string
	Value string
}

// Event is a typed list of attributes.
type Event struct {
	Type       string
	Attributes []Attribute
}

// NewEvent creates an event of the given type.
func NewEvent(typ string) Event {
	return Event{Type: typ}
}

// AddAttribute returns the event with the attribute appended.
func (e Event) AddAttribute(key, value string) Event {
	e.Attributes = append(append([]Attribute{}, e.Attributes...), Attribute{Key: key, Value: value})
	return e
}

// Response is returned by a contract call. The engine only interprets the
// messages; the attributes, events and data are passed through.
type Response struct {
	Messages   []SubMsg
	Attributes []Attribute
	Events     []Event
	Data       []byte
}

// AddMessage returns the response with a sub-message that never replies.
func (r Response) AddMessage(msg Message) Response {
	return r.AddSubMessage(NewSubMsg(msg))
}

// AddSubMessage returns the response with the sub-message appended.
func (r Response) AddSubMessage(msg SubMsg) Response {
	r.Messages = append(append([]SubMsg{}, r.Messages...), msg)
	return r
}

// AddSubMessages returns the response with the sub-messages appended.
func (r Response) AddSubMessages(msgs ...SubMsg) Response {
	r.Messages = append(append([]SubMsg{}, r.Messages...), msgs...)
	return r
}

// AddAttribute returns the response with the attribute appended.
func (r Response) AddAttribute(key, value string) Response {
	r.Attributes = append(append([]Attribute{}, r.Attributes...), Attribute{Key: key, Value: value})
	return r
}

// AddEvent returns the response with the event appended.
func (r Response) AddEvent(event Event) Response {
	r.Events = append(append([]Event{}, r.Events...), event)
	return r
}

// SubMsgResult is the outcome of a sub-message given to the reply. Err is
// empty when the sub-message succeeded, in which case Events and Data are the
// ones of its response.
type SubMsgResult struct {
	Events []Event
	Data   []byte
	Err    string
}

// IsOk returns true if the sub-message succeeded.
func (r SubMsgResult) IsOk() bool {
	return r.Err == ""
}

// Reply is the callback argument of a sub-message.
type Reply struct {
	ID     uint64
	Result SubMsgResult
}
