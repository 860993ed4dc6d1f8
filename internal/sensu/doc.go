// Package sensu talks to the Sensu API: it lists check results to find the
// clients this monitor created, deletes stale clients and ships new check
// results.
//
// Every result this monitor posts carries check_source=consul. Only clients
// with that marker are ever deleted, so clients registered by other means
// are left alone.
package sensu
