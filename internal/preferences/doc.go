// Package preferences persists the list of kubeconfig files and folders to
// sync.
//
// Entries are kept in an observable map keyed by absolute path, so consumers
// can react to additions and removals. The backing file is YAML:
//
//	syncKubeconfigEntries:
//	  - filePath: /home/me/.kube
//	  - filePath: /home/me/work/cluster.yaml
//	    metadata:
//	      team: platform
//
// When the file does not exist the store starts with a single entry for
// ~/.kube.
package preferences
