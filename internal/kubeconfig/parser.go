package kubeconfig

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// ContextModel is one context of a kubeconfig file, split out into a
// self-contained single-context configuration.
type ContextModel struct {
	// KubeconfigPath is the file the context was read from.
	KubeconfigPath string

	// ContextName is the name of the context inside the file.
	ContextName string

	// ClusterName and AuthInfoName are the names the context references.
	ClusterName  string
	AuthInfoName string

	// Namespace is the context's default namespace, if any.
	Namespace string

	// Server is the API server URL of the referenced cluster as written in
	// the file. It is not validated here.
	Server string

	// Config contains only this context, its cluster and its user, with
	// CurrentContext set to ContextName.
	Config *clientcmdapi.Config
}

// RESTConfig builds a client configuration for the context.
func (m ContextModel) RESTConfig() (*rest.Config, error) {
	if m.Config == nil {
		return nil, fmt.Errorf("context %q has no configuration", m.ContextName)
	}
	return clientcmd.NewDefaultClientConfig(*m.Config, &clientcmd.ConfigOverrides{}).ClientConfig()
}

// Equal reports whether two models describe the same context with the same
// configuration.
func (m ContextModel) Equal(other ContextModel) bool {
	if m.KubeconfigPath != other.KubeconfigPath ||
		m.ContextName != other.ContextName ||
		m.ClusterName != other.ClusterName ||
		m.AuthInfoName != other.AuthInfoName ||
		m.Namespace != other.Namespace ||
		m.Server != other.Server {
		return false
	}
	if m.Config == nil || other.Config == nil {
		return m.Config == other.Config
	}
	a, errA := clientcmd.Write(*m.Config)
	b, errB := clientcmd.Write(*other.Config)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// ParseResult is the outcome of parsing one kubeconfig file.
type ParseResult struct {
	// Valid holds the contexts that passed validation, sorted by name.
	Valid []ContextModel

	// Errors holds one entry per context that failed validation.
	Errors []*ContextError

	// CurrentContext is the file's current-context, which may be empty or
	// refer to an invalid context.
	CurrentContext string
}

// Parse decodes kubeconfig YAML or JSON and splits it into per-context
// models.
//
// A malformed document is a hard failure and returns an error wrapping
// ErrMalformedConfig. Invalid contexts do not fail the call; they are
// reported in ParseResult.Errors and their siblings are still returned.
// Empty input yields an empty result.
func Parse(data []byte, kubeconfigPath string) (*ParseResult, error) {
	result := &ParseResult{}
	if len(bytes.TrimSpace(data)) == 0 {
		return result, nil
	}

	config, err := clientcmd.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedConfig, err)
	}
	result.CurrentContext = config.CurrentContext

	names := make([]string, 0, len(config.Contexts))
	for name := range config.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ValidateContext(config, name); err != nil {
			result.Errors = append(result.Errors, &ContextError{ContextName: name, Err: err})
			continue
		}
		model, err := splitContext(config, name, kubeconfigPath)
		if err != nil {
			result.Errors = append(result.Errors, &ContextError{ContextName: name, Err: err})
			continue
		}
		result.Valid = append(result.Valid, model)
	}

	return result, nil
}

// ValidateContext checks that contextName exists in config and that the
// cluster and user it references are present. All problems are reported
// together.
func ValidateContext(config *clientcmdapi.Config, contextName string) error {
	if strings.TrimSpace(contextName) == "" {
		return ErrEmptyContextName
	}
	ctx, ok := config.Contexts[contextName]
	if !ok || ctx == nil {
		return fmt.Errorf("%w: %q", ErrContextNotFound, contextName)
	}

	var errs []error
	if ctx.Cluster == "" {
		errs = append(errs, fmt.Errorf("%w: context does not name a cluster", ErrClusterNotFound))
	} else if c, ok := config.Clusters[ctx.Cluster]; !ok || c == nil {
		errs = append(errs, fmt.Errorf("%w: %q", ErrClusterNotFound, ctx.Cluster))
	}
	if ctx.AuthInfo == "" {
		errs = append(errs, fmt.Errorf("%w: context does not name a user", ErrUserNotFound))
	} else if u, ok := config.AuthInfos[ctx.AuthInfo]; !ok || u == nil {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUserNotFound, ctx.AuthInfo))
	}

	return utilerrors.NewAggregate(errs)
}

// splitContext extracts contextName and its references into a standalone
// configuration. The context must have passed ValidateContext. Relative
// certificate, key and token file paths are resolved against the directory
// of kubeconfigPath.
func splitContext(config *clientcmdapi.Config, contextName, kubeconfigPath string) (ContextModel, error) {
	ctx := config.Contexts[contextName].DeepCopy()
	cluster := config.Clusters[ctx.Cluster].DeepCopy()
	authInfo := config.AuthInfos[ctx.AuthInfo].DeepCopy()
	if kubeconfigPath != "" {
		ctx.LocationOfOrigin = kubeconfigPath
		cluster.LocationOfOrigin = kubeconfigPath
		authInfo.LocationOfOrigin = kubeconfigPath
	}

	split := clientcmdapi.NewConfig()
	split.Contexts[contextName] = ctx
	split.Clusters[ctx.Cluster] = cluster
	split.AuthInfos[ctx.AuthInfo] = authInfo
	split.CurrentContext = contextName

	if err := clientcmd.ResolveLocalPaths(split); err != nil {
		return ContextModel{}, fmt.Errorf("failed to resolve file references: %w", err)
	}

	return ContextModel{
		KubeconfigPath: kubeconfigPath,
		ContextName:    contextName,
		ClusterName:    ctx.Cluster,
		AuthInfoName:   ctx.AuthInfo,
		Namespace:      ctx.Namespace,
		Server:         cluster.Server,
		Config:         split,
	}, nil
}
