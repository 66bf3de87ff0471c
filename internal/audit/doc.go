// Package audit journals operator actions: logins and changes to
// credentials and thresholds made through the API.
//
// Door events are not journalled here; they live in the hash chain.
// The Journal writes asynchronously so an API request never waits on
// SQLite, and drops entries when its buffer is full.
package audit
