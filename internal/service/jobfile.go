package service

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"scrub/internal/pipeline"
)

// ── Job files ──────────────────────────────────────────────
// Jobs can be defined in YAML files for CLI-first use: version the
// rule tables with the dataset instead of clicking them into a store.
// The file shape mirrors pipeline.Job.
//
// Example:
//
//	name: legacy-contacts
//	reader: csv_file
//	readerConfig:
//	  filePath: ./contacts.csv
//	pipeline:
//	  fields:
//	    full_name:
//	      - {column: "Full Name", extractor: text}
//	  rules:
//	    full_name:
//	      transforms:
//	        - {name: trim}
//	        - {name: title_case}
//	      validator: {name: not_empty, reason: EMPTY_NAME}
//	  required: [full_name]
//	  identity: [full_name]

// LoadJobFile parses and validates a YAML job definition.
func LoadJobFile(path string) (*pipeline.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	job, err := ParseJob(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return job, nil
}

// ParseJob decodes a YAML job definition and validates it.
func ParseJob(data []byte) (*pipeline.Job, error) {
	var job pipeline.Job
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	if err := validateJob(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// SaveJobFile writes a job definition back to YAML.
func SaveJobFile(path string, job *pipeline.Job) error {
	data, err := yaml.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write job file: %w", err)
	}
	return nil
}
