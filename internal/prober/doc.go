// Package prober checks every instance of every catalog service, one at a
// time, and ships one check result per instance to Sensu. Posting a result
// for a node Sensu has never seen registers that node as a client.
package prober
