// Package reconciler removes Sensu clients whose node has left the Consul
// catalog. Only clients created by this monitor are considered; a node that
// is registered but down keeps its client so its checks keep alerting.
package reconciler
