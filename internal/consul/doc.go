// Package consul reads the service catalog: registered nodes, registered
// services and the instances behind each service. It never writes to Consul.
package consul
