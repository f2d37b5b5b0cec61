package ai

const ExtractPrompt = `
# Task Context
You are a helpful assistant specialized in building knowledge graphs from text. You will be provided with a text document.

# Detailed Task Description & Rules
- Identify the entities mentioned in the text. For each entity capture a name, a type (one of: %s) and a comprehensive description of everything the text states about it.
- Assign every entity a local id ("n1", "n2", ...) that is unique within your answer.
- Identify relationships between the entities you found. A relationship references the local ids of its source and target entity and carries a short natural-language label explaining how they are related.
- Only report relationships between entities present in your answer.
- Do not invent entities or relationships that are not supported by the text.

# Output Formatting
Return a JSON object matching the provided schema.
`

const MergeDescriptionsPrompt = `
# Task Context
You are a helpful assistant that consolidates entity descriptions in a knowledge graph.

# Detailed Task Description & Rules
- You will receive two descriptions of the same entity.
- Write a single coherent description that preserves every distinct fact from both inputs.
- Do not add information that is not present in either input.
- Answer with the merged description only, no preamble.

# Background Data
Description 1:
%s

Description 2:
%s
`

const InferRelationPrompt = `
# Task Context
You are a helpful assistant that decides whether two entities of a knowledge graph are related.

# Background Data
Entity 1:
%s

Entity 2:
%s

# Detailed Task Description & Rules
- Decide whether the two entities are meaningfully related based on their descriptions.
- If they are related, decide the direction: "node1" when entity 1 is the source of the relation, "node2" when entity 2 is the source.
- Provide a short natural-language label for the relationship.
- If they are not related, set related to false and leave the other fields empty.

# Output Formatting
Return a JSON object matching the provided schema.
`

const CommunitySummaryPrompt = `
# Task Context
You are a helpful assistant that summarizes a community of related entities in a knowledge graph.

# Detailed Task Description & Rules
- You will receive one entity per line in the form "Name:...; Type:...; Desc:...".
- Write a concise summary of what this group of entities is about: the main actors, concepts and how they relate.
- Ground every statement in the provided entities.

# Background Data
%s
`

const GlobalSummaryPrompt = `
# Task Context
You are a helpful assistant that writes a corpus-level summary from community summaries of a knowledge graph.

# Detailed Task Description & Rules
- You will receive one community summary per line.
- Write a single summary describing the corpus as a whole: the main themes and how the communities relate to each other.
- Ground every statement in the provided summaries.

# Background Data
%s
`

const AnswerPrompt = `
# Task Context
You are a helpful assistant that answers questions using a knowledge graph.

# Background Data
The following JSON document is the subgraph relevant to the question. Nodes carry a name, a type and a description; edges connect node ids with a relationship label.

%s

# Detailed Task Description & Rules
- Answer the question using only the information in the subgraph.
- If the subgraph does not contain the answer, say so instead of guessing.
- Answer in the language of the question.
`

const CommunityContextPrompt = `
# Additional Context
Community summaries of the corpus:
%s

Corpus summary:
%s
`
