package main

// background runs fn without blocking the request, recovering any panic so
// a failed side task (mail, preview cleanup) never takes the server down.
func (app *application) background(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				app.logger.Errorw("recovered panic in background task", "panic", r)
			}
		}()
		fn()
	}()
}
