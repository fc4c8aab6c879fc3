package spec

const petstoreYAML = `openapi: 3.0.3
info:
  title: Petstore
  version: "1.0.0"
  description: Demo
servers:
  - url: https://api.example.com/v1
    description: production
security:
  - apiKey: []
paths:
  /pets:
    parameters:
      - in: query
        name: limit
        required: false
        schema:
          type: integer
    get:
      summary: List pets
      tags: [pets]
      parameters:
        - in: query
          name: limit
          required: true
          schema:
            type: integer
            minimum: 1
            maximum: 100
        - in: query
          name: status
          style: form
          explode: false
          schema:
            type: array
            items:
              type: string
              enum: [available, pending, sold]
        - in: query
          name: sort
          x-purpose: sort
          schema:
            type: string
      responses:
        200:
          description: ok
          content:
            application/json:
              schema:
                type: array
                items:
                  $ref: '#/components/schemas/Pet'
    post:
      operationId: createPet
      tags: [pets]
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Pet'
      responses:
        "201":
          description: created
  /pets/{id}:
    parameters:
      - in: path
        name: id
        schema:
          type: integer
    get:
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Pet'
    put:
      responses:
        "200": { description: ok }
    delete:
      security: []
      responses:
        "204": { description: gone }
  /owners:
    get:
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: array
                items:
                  $ref: '#/components/schemas/Owner'
components:
  securitySchemes:
    apiKey:
      type: apiKey
      in: header
      name: X-API-Key
  schemas:
    Pet:
      type: object
      required: [id, name]
      properties:
        id:
          type: integer
          format: int64
        name:
          type: string
          minLength: 1
          maxLength: 64
        status:
          type: string
          enum: [available, pending, sold]
        price:
          type: number
          minimum: 0
          exclusiveMinimum: true
        owner:
          $ref: '#/components/schemas/Owner'
        tags:
          type: array
          items:
            $ref: '#/components/schemas/Tag'
    Owner:
      type: object
      required: [email]
      properties:
        email:
          type: string
          format: email
        pets:
          type: array
          items:
            $ref: '#/components/schemas/Pet'
    Tag:
      type: object
      properties:
        label:
          type: string
`
