package logging

import (
	"github.com/sirupsen/logrus"
)

// JobFields returns the structured fields every job-scoped log line carries.
func JobFields(jobID, jobType, organization string) logrus.Fields {
	return logrus.Fields{
		"job_id":       jobID,
		"job_type":     jobType,
		"organization": organization,
	}
}

// WorkUnitFields returns the structured fields a work-unit-scoped log line
// carries, layered on top of JobFields.
func WorkUnitFields(jobID string, sequenceNumber int, workerID string) logrus.Fields {
	return logrus.Fields{
		"job_id":          jobID,
		"sequence_number": sequenceNumber,
		"worker_id":       workerID,
	}
}
