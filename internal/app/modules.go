package app

import (
	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/modules/env_vars"
	"github.com/specialistvlad/liveresolver/modules/http_request"
	"github.com/specialistvlad/liveresolver/modules/resolve"
	"github.com/specialistvlad/liveresolver/modules/sum"
)

// coreModules is the definitive list of all modules that are compiled into
// the liveresolver binary.
func coreModules() []handlers.Module {
	return []handlers.Module{
		&sum.Module{},
		&resolve.Module{},
		&http_request.Module{},
		&env_vars.Module{},
	}
}
