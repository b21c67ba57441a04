package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/adapters/mailfilter"
	"github.com/mikey/llm-email-classifier/internal/config"
	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/ports"
	"github.com/mikey/llm-email-classifier/internal/utils"
)

// FilterFactory creates mail surfaces based on configuration
type FilterFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *core.ClassifierService
	text    *utils.TextProcessor
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, service *core.ClassifierService, text *utils.TextProcessor) *FilterFactory {
	return &FilterFactory{
		cfg:     cfg,
		logger:  logger,
		service: service,
		text:    text,
	}
}

// CreateEmailFilter creates a mail surface based on the configuration
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	filterType := f.cfg.GetString("server.filter_type")

	switch filterType {
	case "postfix":
		return mailfilter.NewPostfixFilter(
			f.service,
			f.logger,
			f.text,
			f.cfg.GetString("server.listen_address"),
			f.cfg.GetBool("server.block_spam"),
			mailfilter.HeaderNames{
				Category:   f.cfg.GetString("server.headers.category"),
				Confidence: f.cfg.GetString("server.headers.confidence"),
				Reason:     f.cfg.GetString("server.headers.reason"),
				Stage:      f.cfg.GetString("server.headers.stage"),
			},
			f.cfg.GetString("server.postfix.address"),
			f.cfg.GetInt("server.postfix.port"),
			f.cfg.GetString("server.subject_prefix"),
			f.cfg.GetBool("server.modify_subject"),
		), nil
	case "cli":
		return mailfilter.NewCliFilter(
			f.service,
			f.logger,
			f.cfg.GetBool("cli.verbose"),
		)
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", filterType)
	}
}
