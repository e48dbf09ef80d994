package sft

// SFTService is the orchestration layer that coordinates the store and the
// physical archive to perform the operations needed by the CLI and the
// directory watcher.
type SFTService struct {
	database   Database
	archive    Archive
	classifier *Classifier
	logger     Logger
	clock      Clock
	idgen      IDGenerator
}

// NewSFTService creates a new SFTService with the provided dependencies.
func NewSFTService(database Database, archive Archive, classifier *Classifier, logger Logger, clock Clock, idgen IDGenerator) *SFTService {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	if logger == nil {
		logger = DiscardLogger()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if idgen == nil {
		idgen = UUIDv7()
	}
	return &SFTService{
		database:   database,
		archive:    archive,
		classifier: classifier,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
	}
}

// Classifier returns the category classifier in use.
func (s *SFTService) Classifier() *Classifier {
	return s.classifier
}

// Init creates the on-disk layout for every configured category.
func (s *SFTService) Init() error {
	return s.archive.EnsureLayout(s.classifier.Categories())
}
