// Package twiml renders the call-control markup the voice carrier expects in
// response to every webhook. Verbs are emitted in the order they are added.
package twiml

import (
	"encoding/xml"
	"net/http"
)

// Say speaks text to the caller.
type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

// Gather collects DTMF digits and posts them to Action.
type Gather struct {
	XMLName     xml.Name `xml:"Gather"`
	Action      string   `xml:"action,attr,omitempty"`
	Method      string   `xml:"method,attr,omitempty"`
	NumDigits   int      `xml:"numDigits,attr,omitempty"`
	FinishOnKey string   `xml:"finishOnKey,attr,omitempty"`
	Timeout     int      `xml:"timeout,attr,omitempty"`
	Say         []Say    `xml:"Say"`
}

// Number is a dial target carrying its own per-leg status callbacks.
type Number struct {
	XMLName              xml.Name `xml:"Number"`
	StatusCallback       string   `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent  string   `xml:"statusCallbackEvent,attr,omitempty"`
	StatusCallbackMethod string   `xml:"statusCallbackMethod,attr,omitempty"`
	Value                string   `xml:",chardata"`
}

// Dial bridges the current call to another party.
type Dial struct {
	XMLName                       xml.Name `xml:"Dial"`
	CallerID                      string   `xml:"callerId,attr,omitempty"`
	Timeout                       int      `xml:"timeout,attr,omitempty"`
	Record                        string   `xml:"record,attr,omitempty"`
	RecordingStatusCallback       string   `xml:"recordingStatusCallback,attr,omitempty"`
	RecordingStatusCallbackMethod string   `xml:"recordingStatusCallbackMethod,attr,omitempty"`
	Number                        Number   `xml:"Number"`
}

// Redirect transfers control to another webhook.
type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Hangup ends the call.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Response is an ordered sequence of verbs.
type Response struct {
	verbs []any
}

// New returns an empty response document.
func New() *Response {
	return &Response{}
}

func (r *Response) add(v any) *Response {
	r.verbs = append(r.verbs, v)
	return r
}

// Say appends a spoken line using the default voice.
func (r *Response) Say(text string) *Response {
	return r.add(Say{Text: text})
}

// Gather appends a digit gather.
func (r *Response) Gather(g Gather) *Response {
	return r.add(g)
}

// Dial appends a bridged dial.
func (r *Response) Dial(d Dial) *Response {
	return r.add(d)
}

// Redirect appends a POST redirect to the given webhook URL.
func (r *Response) Redirect(url string) *Response {
	return r.add(Redirect{Method: "POST", URL: url})
}

// Hangup appends a hangup.
func (r *Response) Hangup() *Response {
	return r.add(Hangup{})
}

// MarshalXML encodes the verbs in insertion order under <Response>.
func (r *Response) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "Response"}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, v := range r.verbs {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// Render returns the full document including the XML header.
func (r *Response) Render() ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// Write emits the document with the carrier's expected content type. Rendering
// failures degrade to an empty <Response/> so the carrier always gets markup.
func (r *Response) Write(w http.ResponseWriter) {
	body, err := r.Render()
	if err != nil {
		body = []byte(xml.Header + "<Response></Response>")
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// VoiceError is the generic fallback spoken when a handler cannot recover.
// The carrier must always receive valid markup, never a raw HTTP failure.
func VoiceError() *Response {
	return New().
		Say("We are experiencing technical difficulties. Please try again later. Goodbye.").
		Hangup()
}
