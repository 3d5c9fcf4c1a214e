package domain

import "time"

// RequestClass isolates unrelated kinds of requests from one another.
type RequestClass string

const (
	ClassVenues      RequestClass = "venues"
	ClassRouteScore  RequestClass = "route-score"
	ClassDisruptions RequestClass = "disruptions"
	ClassComparison  RequestClass = "comparison"
	ClassHazards     RequestClass = "hazards"
)

var RequestClasses = []RequestClass{ClassVenues, ClassRouteScore, ClassDisruptions, ClassComparison, ClassHazards}

func ParseRequestClass(s string) (RequestClass, bool) {
	for _, c := range RequestClasses {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Advisory is a dismissable notice raised when a class fails.
type Advisory struct {
	Class     RequestClass `json:"class"`
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Retryable bool         `json:"retryable"`
	RaisedAt  time.Time    `json:"raised_at"`
}
