// Package healthcheck performs the HTTP check run against every catalog
// instance and maps the response onto Sensu's check status codes.
package healthcheck
