/*
MIT License

Copyright (c) 2020 Nicolas JUHEL

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package rlog

import "github.com/sirupsen/logrus"

// Entry is a chainable builder, grounded on the teacher's logger.Entry
// FieldAdd/ErrorAdd pattern, trimmed to what this proxy needs: no gin
// context, no goroutine-id/caller trace (the teacher's enableTrace knob),
// since those serve an HTTP-service ambient concern this proxy does not have.
type Entry struct {
	logger *logrus.Logger
	level  Level
	msg    string
	fields logrus.Fields
	errs   []error
}

// Field adds one key/value pair to the entry and returns it for chaining.
func (e *Entry) Field(key string, val interface{}) *Entry {
	e.fields[key] = val
	return e
}

// Error attaches a non-nil cause to the entry; nil errors are dropped
// silently, mirroring the teacher's ErrorAdd(cleanNil=true, ...).
func (e *Entry) Error(err error) *Entry {
	if err != nil {
		e.errs = append(e.errs, err)
	}
	return e
}

// Log emits the entry at its configured level.
func (e *Entry) Log() {
	le := e.logger.WithFields(e.fields)
	if len(e.errs) == 1 {
		le = le.WithError(e.errs[0])
	} else if len(e.errs) > 1 {
		msgs := make([]interface{}, 0, len(e.errs))
		for _, er := range e.errs {
			msgs = append(msgs, er)
		}
		le = le.WithField(FieldErrors, msgs)
	}

	switch e.level {
	case PanicLevel:
		le.Panic(e.msg)
	case FatalLevel:
		le.Fatal(e.msg)
	case ErrorLevel:
		le.Error(e.msg)
	case WarnLevel:
		le.Warn(e.msg)
	case InfoLevel:
		le.Info(e.msg)
	case DebugLevel:
		le.Debug(e.msg)
	}
}

const FieldErrors = "errors"
