package config

const (
	// TopicIngestTask is the NSQ topic for document ingestion tasks.
	// The upload path publishes here and never waits for completion;
	// document status is the only completion signal.
	TopicIngestTask = "ingest.task"

	// ChannelIngest is the consumer channel for the in-process ingestion worker.
	ChannelIngest = "worker"
)
