// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

// Type IDs of the builtin SSC catalog.
const (
	TypeApplicationVersion       = "applicationVersion"
	TypeCreateApplicationVersion = "createApplicationVersion"
	TypeUploadArtifact           = "uploadArtifact"
	TypeCheckIssueCount          = "checkIssueCount"
)

// Property names used by the builtin types.
const (
	PropApplicationName          = "applicationName"
	PropVersionName              = "versionName"
	PropIssueTemplateName        = "issueTemplateName"
	PropFPRFilter                = "fprFilter"
	PropProcessingTimeoutSeconds = "processingTimeoutSeconds"
	PropAutoApprove              = "autoApprove"
	PropSearchString             = "searchString"
	PropOperator                 = "operator"
	PropThreshold                = "threshold"

	// Every operation type carries these two error-handling properties.
	PropStopOnFailure     = "stopOnFailure"
	PropSeverityOnFailure = "severityOnFailure"
)

// Defaults for the builtin types.
const (
	DefaultFPRFilter                = "**/*.fpr"
	DefaultProcessingTimeoutSeconds = 600
	DefaultOperator                 = ">"
)

// ErrorHandlingProperties returns the stopOnFailure and severityOnFailure
// declarations shared by every operation type.
func ErrorHandlingProperties() []Property {
	return []Property{
		{
			Name:        PropStopOnFailure,
			Kind:        KindBool,
			Zero:        true,
			Description: "Stop the pipeline when this operation fails",
		},
		{
			Name:        PropSeverityOnFailure,
			Kind:        KindSeverity,
			Zero:        "FAILURE",
			Description: "Severity contributed to the build result when this operation fails",
		},
	}
}

// Builtin returns the catalog of SSC operation types.
func Builtin() *Catalog {
	return MustNew(
		ConfigurableType{
			ID:          TypeApplicationVersion,
			DisplayName: "Application version",
			Order:       100,
			Kind:        Static,
			Properties: []Property{
				{Name: PropApplicationName, Kind: KindString, Zero: "", Required: true, Description: "SSC application name"},
				{Name: PropVersionName, Kind: KindString, Zero: "", Required: true, Description: "SSC application version name"},
			},
		},
		ConfigurableType{
			ID:          TypeCreateApplicationVersion,
			DisplayName: "Create application version",
			Order:       100,
			Kind:        Dynamic,
			Properties: append([]Property{
				{Name: PropIssueTemplateName, Kind: KindString, Zero: "", Description: "Issue template for newly created versions"},
			}, ErrorHandlingProperties()...),
		},
		ConfigurableType{
			ID:          TypeUploadArtifact,
			DisplayName: "Upload FPR artifact",
			Order:       200,
			Kind:        Dynamic,
			Properties: append([]Property{
				{Name: PropFPRFilter, Kind: KindString, Zero: DefaultFPRFilter, Required: true, Description: "Workspace glob selecting the FPR file"},
				{Name: PropProcessingTimeoutSeconds, Kind: KindInt, Zero: DefaultProcessingTimeoutSeconds, Description: "Seconds to wait for SSC to process the upload"},
				{Name: PropAutoApprove, Kind: KindBool, Zero: false, Description: "Approve the artifact if SSC requires approval"},
			}, ErrorHandlingProperties()...),
		},
		ConfigurableType{
			ID:          TypeCheckIssueCount,
			DisplayName: "Check issue count",
			Order:       500,
			Kind:        Dynamic,
			Properties: append([]Property{
				{Name: PropSearchString, Kind: KindString, Zero: "", Description: "SSC issue search string"},
				{Name: PropOperator, Kind: KindString, Zero: DefaultOperator, Required: true, Description: "Comparison operator: <, = or >"},
				{Name: PropThreshold, Kind: KindInt, Zero: 0, Description: "Right-hand side of the comparison"},
			}, ErrorHandlingProperties()...),
		},
	)
}
