// Package kubeconfig parses kubeconfig documents into independent
// per-context models.
//
// A kubeconfig file may describe many contexts. Parse splits the file so
// that every context carries only the cluster and user it references, and
// validates each context on its own: a context that references a missing
// cluster or user is reported and skipped without affecting its siblings.
// Only a document that cannot be decoded at all fails the whole call.
//
// Decoding is delegated to k8s.io/client-go/tools/clientcmd, so both YAML
// and JSON kubeconfigs are accepted.
package kubeconfig
