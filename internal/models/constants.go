package models

const (
	ContextSeparator = "\n\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	ManifestFormatVersion = 1
	DistanceCosine        = "cosine"

	DocTypePDF  = "pdf"
	DocTypeTXT  = "txt"
	DocTypeMD   = "md"
	DocTypeDOCX = "docx"
	DocTypePPTX = "pptx"
	DocTypeXLSX = "xlsx"
	DocTypeXLSM = "xlsm"
)

// AnswerPromptTemplate uses Go template syntax; variables: context, question, language.
var AnswerPromptTemplate = `You are a helpful programming assistant.
Use the following context to answer the question.
If the answer is not in the context, say that you do not know.
Your task is to answer the user's question EXCLUSIVELY in the requested language.
Answer in {{.language}}.

Context: {{.context}}

Question: {{.question}}

Answer:`

// ContextPromptTemplate asks for a short situating context for a chunk; variables: document, chunk.
var ContextPromptTemplate = `<document>
{{.document}}
</document>
Here is the chunk we want to situate within the whole document
<chunk>
{{.chunk}}
</chunk>
Please give a short succinct context to situate this chunk within the overall document for the purposes of improving search retrieval of the chunk. Answer only with the succinct context and nothing else.`
