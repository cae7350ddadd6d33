// Package descriptor builds the config.json document the journey canvas
// loads to learn about the custom activity.
package descriptor

// Execution settings declared to the platform. They are honoured by the
// caller and never enforced here.
const (
	TimeoutMs          = 10000
	RetryCount         = 3
	RetryDelayMs       = 1000
	ConcurrentRequests = 5
)

type Descriptor struct {
	WorkflowAPIVersion     string                 `json:"workflowApiVersion"`
	MetaData               MetaData               `json:"metaData"`
	Type                   string                 `json:"type"`
	Lang                   map[string]Lang        `json:"lang"`
	Arguments              Arguments              `json:"arguments"`
	ConfigurationArguments ConfigurationArguments `json:"configurationArguments"`
	UserInterfaces         UserInterfaces         `json:"userInterfaces"`
	Schema                 Schema                 `json:"schema"`
}

type MetaData struct {
	Icon     string `json:"icon"`
	Category string `json:"category"`
}

type Lang struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Arguments struct {
	Execute Execute `json:"execute"`
}

type Execute struct {
	InArguments        []map[string]string `json:"inArguments"`
	OutArguments       []map[string]string `json:"outArguments"`
	URL                string              `json:"url"`
	Timeout            int                 `json:"timeout"`
	RetryCount         int                 `json:"retryCount"`
	RetryDelay         int                 `json:"retryDelay"`
	ConcurrentRequests int                 `json:"concurrentRequests"`
}

type ConfigurationArguments struct {
	Publish  Endpoint `json:"publish"`
	Validate Endpoint `json:"validate"`
	Stop     Endpoint `json:"stop"`
}

type Endpoint struct {
	URL string `json:"url"`
}

type UserInterfaces struct {
	ConfigurationSupportsReadOnlyMode bool            `json:"configurationSupportsReadOnlyMode"`
	ConfigInspector                   ConfigInspector `json:"configInspector"`
}

type ConfigInspector struct {
	Size        string `json:"size"`
	EmptyIframe bool   `json:"emptyIframe"`
}

type Schema struct {
	Arguments SchemaArguments `json:"arguments"`
}

type SchemaArguments struct {
	Execute SchemaExecute `json:"execute"`
}

type SchemaExecute struct {
	InArguments  []map[string]SchemaField `json:"inArguments"`
	OutArguments []map[string]SchemaField `json:"outArguments"`
}

type SchemaField struct {
	DataType  string `json:"dataType"`
	Direction string `json:"direction"`
	Access    string `json:"access"`
}

// Build returns the descriptor for an activity served from host under basePath
// (for example "/modules/journey-logger")
func Build(host, basePath string) Descriptor {
	base := "https://" + host + basePath

	outField := SchemaField{DataType: "Text", Direction: "out", Access: "visible"}

	return Descriptor{
		WorkflowAPIVersion: "1.1",
		MetaData: MetaData{
			Icon:     "images/icon.svg",
			Category: "customer",
		},
		// Custom activities must declare REST
		Type: "REST",
		Lang: map[string]Lang{
			"en-US": {
				Name:        "Journey Logger",
				Description: "Log the fact that a Contact went through this activity on a Data Extension",
			},
		},
		Arguments: Arguments{
			Execute: Execute{
				InArguments: []map[string]string{{
					"contactKey":          "{{Contact.Key}}",
					"journeyDefinitionId": "{{Context.DefinitionId}}",
					"journeyVersion":      "{{Context.VersionNumber}}",
					"journeyId":           "",
					"journeyName":         "",
					"label":               "",
				}},
				OutArguments:       []map[string]string{},
				URL:                base + "/execute",
				Timeout:            TimeoutMs,
				RetryCount:         RetryCount,
				RetryDelay:         RetryDelayMs,
				ConcurrentRequests: ConcurrentRequests,
			},
		},
		ConfigurationArguments: ConfigurationArguments{
			Publish:  Endpoint{URL: base + "/publish"},
			Validate: Endpoint{URL: base + "/validate"},
			Stop:     Endpoint{URL: base + "/stop"},
		},
		UserInterfaces: UserInterfaces{
			ConfigurationSupportsReadOnlyMode: true,
			ConfigInspector: ConfigInspector{
				Size:        "scm-md",
				EmptyIframe: true,
			},
		},
		Schema: Schema{
			Arguments: SchemaArguments{
				Execute: SchemaExecute{
					InArguments: []map[string]SchemaField{},
					OutArguments: []map[string]SchemaField{{
						"label": outField,
						"data":  outField,
					}},
				},
			},
		},
	}
}
