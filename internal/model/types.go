package model

import "time"

const EnvelopeVersion = "1"

// Envelope is the stable output contract of every command: agents parse it,
// humans read the plain rendering of it.
type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code        int    `json:"code"`
	Type        string `json:"type"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
}
