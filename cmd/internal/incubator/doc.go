// Package incubator implements the program workflows around the session
// core: public applications, admin review and user management, and mentor
// opportunities. It also serves the role-dispatched dashboard views.
//
// Every collection lives in the shared storage namespace under the same keys
// the dashboard has always used, so records written by older clients keep
// decoding.
package incubator
