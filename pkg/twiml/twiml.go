// Package twiml renders the small voice markup vocabulary returned to Twilio webhooks.
package twiml

import (
	"encoding/xml"
	"fmt"
)

// ContentType is the media type Twilio expects for markup responses.
const ContentType = "text/xml; charset=utf-8"

// Say speaks text to the caller.
type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

// Gather listens for caller input and posts the result to Action.
type Gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr,omitempty"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Language      string   `xml:"language,attr,omitempty"`
	Prompt        *Say     `xml:",omitempty"`
}

// Hangup ends the call.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Response is an ordered list of verbs.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// NewResponse returns an empty response.
func NewResponse() *Response {
	return &Response{}
}

// Say appends a spoken line.
func (r *Response) Say(text, voice, language string) *Response {
	r.Verbs = append(r.Verbs, Say{Text: text, Voice: voice, Language: language})
	return r
}

// Gather appends a listen instruction.
func (r *Response) Gather(g Gather) *Response {
	r.Verbs = append(r.Verbs, g)
	return r
}

// Hangup appends a hangup verb.
func (r *Response) Hangup() *Response {
	r.Verbs = append(r.Verbs, Hangup{})
	return r
}

// Render serialises the response with the XML declaration.
func (r *Response) Render() ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("render twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// MustRender is Render for responses built only from this package's verbs, which always marshal.
func (r *Response) MustRender() []byte {
	out, err := r.Render()
	if err != nil {
		panic(err)
	}
	return out
}
