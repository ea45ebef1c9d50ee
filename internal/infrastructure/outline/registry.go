package outline

import (
	"fmt"

	"github.com/orris-inc/keygate/internal/application/provisioning"
	"github.com/orris-inc/keygate/internal/shared/config"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

// NewRegistry builds one client per configured server. Regions must be unique.
func NewRegistry(cfg config.OutlineConfig, log logger.Interface) (provisioning.StaticRegistry, error) {
	registry := make(provisioning.StaticRegistry, len(cfg.Servers))
	for _, server := range cfg.Servers {
		if _, dup := registry[server.Region]; dup {
			return nil, fmt.Errorf("outline region %q configured twice", server.Region)
		}
		registry[server.Region] = NewClient(server, cfg.Timeout, log)
	}
	return registry, nil
}
