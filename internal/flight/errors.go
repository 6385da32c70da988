package flight

// ScraperError reports a failed provider query. The search loop treats it as
// zero flights for one attempt.
type ScraperError struct {
	Msg string
	Err error
}

func (e *ScraperError) Error() string {
	if e.Err != nil {
		return "flight search: " + e.Msg + ": " + e.Err.Error()
	}
	return "flight search: " + e.Msg
}

func (e *ScraperError) Unwrap() error {
	return e.Err
}

func newScraperError(msg string, err error) *ScraperError {
	return &ScraperError{Msg: msg, Err: err}
}
