// Package proxy forwards authenticated requests to registered upstream
// services. The gateway is the trust boundary: client headers never pass
// through wholesale, identity headers are set here and only here.
package proxy
