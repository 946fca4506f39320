package ingest

import "github.com/google/uuid"

// Namespaces for deterministic identity derivation. Stable across releases;
// changing them would orphan every stored finding.
var (
	findingNamespace  = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	scaIssueNamespace = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
)

// FindingID derives the stable identity of a finding from (task id,
// fingerprint). Re-processing the same stage output yields the same id,
// making ingestion an idempotent replace.
func FindingID(taskID uuid.UUID, fingerprint string) uuid.UUID {
	return uuid.NewSHA1(findingNamespace, []byte(taskID.String()+"/"+fingerprint))
}

// ScaIssueID derives the stable identity of an SCA issue from
// (tenant, task id, issue key).
func ScaIssueID(tenant string, taskID uuid.UUID, issueKey string) uuid.UUID {
	return uuid.NewSHA1(scaIssueNamespace, []byte(tenant+"/"+taskID.String()+"/"+issueKey))
}
